package model

// OperatorToken is carried by the tokens accepted on operator endpoints.
type OperatorToken struct {
	Name string `json:"name"`
}
