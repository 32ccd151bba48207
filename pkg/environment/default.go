package environment

// NewDefaultProvider returns the environment lookup chain used outside of
// tests: the process environment only. It is wrapped in a MultiProvider so
// additional sources (an env file, a secrets backend) can be layered in
// front of it without changing call sites.
func NewDefaultProvider() Provider {
	return NewMultiProvider(NewOsEnvProvider())
}
