package providers

// NewGoogle creates the Google preset. Google only hands out a refresh
// token when offline access is requested with forced consent, which the
// Generic provider does by default.
func NewGoogle(opts ...GenericOption) *Generic {
	g := NewGeneric(
		"https://accounts.google.com/o/oauth2/v2/auth",
		"https://oauth2.googleapis.com/token",
		"https://openidconnect.googleapis.com/v1/userinfo",
		opts...,
	)
	g.name = "google"
	g.subjectKeys = []string{"sub"}
	return g
}
