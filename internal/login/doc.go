// Package login exchanges credentials for an access token.
//
// Service.Login looks the identity up by email, verifies the password with
// bcrypt and issues a token through the auth.TokenCodec. An unknown email and
// a wrong password produce the same apperr.WrongLogin failure, and take the
// same time thanks to auth.EqualizeTiming.
//
// Handler exposes the flow as POST /connexion:
//
//	{"email": "...", "mot_de_passe": "..."}
//
// and answers 200 with {"access_token": "...", "user": {...}}.
package login
