// ABOUTME: HTTP handler for POST /connexion
// ABOUTME: Decodes and validates the login body, then renders the login result

package login

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/2389/refuge-gateway/internal/apperr"
)

// maxBodyBytes bounds the login request body.
const maxBodyBytes = 1 << 16

// Request is the login body.
type Request struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"mot_de_passe" validate:"required"`
}

// Handler serves the login endpoint.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler creates the login HTTP handler.
func NewHandler(service *Service) *Handler {
	validate := validator.New()

	// Use JSON field names in validation messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{service: service, validate: validate}
}

// ServeHTTP handles POST /connexion.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		apperr.Write(w, apperr.Wrap(apperr.KindBadClientData, err))
		return
	}

	if err := h.validateRequest(&req); err != nil {
		apperr.Write(w, err)
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		apperr.Write(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(result)
}

func (h *Handler) validateRequest(req *Request) error {
	err := h.validate.Struct(req)
	if err == nil {
		return nil
	}

	var fields []string
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			fields = append(fields, fieldMessage(fe))
		}
	}
	return apperr.Validation(fields...)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s : champ obligatoire", fe.Field())
	default:
		return fmt.Sprintf("%s : valeur invalide", fe.Field())
	}
}
