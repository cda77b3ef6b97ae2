// ABOUTME: Error kinds with their HTTP status, display name and default message
// ABOUTME: The set is closed; unknown kinds render as internal errors

package apperr

import "net/http"

// Kind identifies one member of the failure taxonomy.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindBadClientData
	KindAlreadyRequested
	KindSheltered
	KindFostered
	KindWrongLogin
	KindUnauthorized
	KindNotFound
	KindCreation
	KindUpdate
	KindDeletion
)

type kindInfo struct {
	status  int
	name    string
	message string
}

// genericCredentials is shared by BadClientData and WrongLogin so that neither
// reveals which check failed.
const genericCredentials = "Les informations saisies n'ont pas l'air correctes. Merci de réessayer."

var kinds = map[Kind]kindInfo{
	KindInternal:         {http.StatusInternalServerError, "Internal Server Error", "Une erreur est survenue. Merci de réessayer ultérieurement."},
	KindValidation:       {http.StatusBadRequest, "Validation Error", "Les champs suivants présentent des erreurs : "},
	KindBadClientData:    {http.StatusBadRequest, "Bad Request", genericCredentials},
	KindAlreadyRequested: {http.StatusBadRequest, "Already requested", "Vous avez déjà effectué une demande pour cet animal !"},
	KindSheltered:        {http.StatusBadRequest, "Still sheltering", "Vous accueillez actuellement un ou plusieurs animaux enregistrés sur notre site. Merci de contacter un administrateur afin de supprimer votre compte !"},
	KindFostered:         {http.StatusBadRequest, "Still fostering", "Vous accueillez actuellement un animal. Merci de contacter le refuge concerné avant de supprimer votre compte !"},
	KindWrongLogin:       {http.StatusUnauthorized, "Invalid Credentials", genericCredentials},
	KindUnauthorized:     {http.StatusUnauthorized, "Unauthorized", "Unauthorized"},
	KindNotFound:         {http.StatusNotFound, "Not Found", "Ce que vous recherchez n'a pas l'air d'exister."},
	KindCreation:         {http.StatusInternalServerError, "Creation Failed", "Erreur lors de la création"},
	KindUpdate:           {http.StatusInternalServerError, "Update Failed", "Erreur lors de la mise à jour."},
	KindDeletion:         {http.StatusInternalServerError, "Could not delete", "Suppression impossible."},
}

func (k Kind) info() kindInfo {
	if info, ok := kinds[k]; ok {
		return info
	}
	return kinds[KindInternal]
}

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	return k.info().status
}

// Name returns the display name used in the "error" field of the envelope.
func (k Kind) Name() string {
	return k.info().name
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	return k.Name()
}

// DefaultMessage returns the user-facing message used when none is supplied.
func (k Kind) DefaultMessage() string {
	return k.info().message
}
