package submission

type submitOptions struct {
	successMessage string
	errorMessage   string
	onSuccess      func(Result)
	onError        func(Result)
	requireSubject bool
}

// Option customizes a single Submit call.
type Option func(*submitOptions)

// WithSuccessMessage replaces the default thank-you text.
func WithSuccessMessage(msg string) Option {
	return func(o *submitOptions) { o.successMessage = msg }
}

// WithErrorMessage replaces the templated text shown when both delivery
// paths fail. Validation and rate-limit messages are not affected.
func WithErrorMessage(msg string) Option {
	return func(o *submitOptions) { o.errorMessage = msg }
}

// WithOnSuccess registers a callback run after a successful submission.
func WithOnSuccess(fn func(Result)) Option {
	return func(o *submitOptions) { o.onSuccess = fn }
}

// WithOnError registers a callback run after any failed submission.
func WithOnError(fn func(Result)) Option {
	return func(o *submitOptions) { o.onError = fn }
}

// WithRequireSubject makes the subject field mandatory.
func WithRequireSubject(required bool) Option {
	return func(o *submitOptions) { o.requireSubject = required }
}
