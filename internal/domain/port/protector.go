package port

// FileProtector converts an analyzed file into its protected form and
// removes the plaintext.
type FileProtector interface {
	Protect(path string) (string, error)
}
