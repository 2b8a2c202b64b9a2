package error

// GenericError es el contrato comun de errores que la capa REST/MCP sabe traducir.
type GenericError interface {
	Error() string
	ErrCode() string
	StatusCode() int
}
