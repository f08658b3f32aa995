// Package users holds the user record exchanged with the backend and the
// checks the registration form applies before submitting it.
//
// CPF and CNPJ are kept as digits on the wire and formatted for display with
// FormatCPF (000.000.000-00) and FormatCNPJ (00.000.000/0000-00). Both
// formatters accept partial input and format as much as is present.
package users
