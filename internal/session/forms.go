package session

// Input forms, checked before any request is made.

type roleForm struct {
	Role string `json:"role" validate:"required,role"`
}

type phoneForm struct {
	Phone string `json:"phone" validate:"required,min=10"`
}

type codeForm struct {
	Code string `json:"code" validate:"required,len=6"`
}

type credentialsForm struct {
	Username string `json:"username" validate:"notblank"`
	Password string `json:"password" validate:"notblank"`
}
