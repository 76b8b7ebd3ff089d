package ports

// Navigator sends the user back to the login entry point.
type Navigator interface {
	NavigateToLogin()
}

type NavigatorFunc func()

func (f NavigatorFunc) NavigateToLogin() {
	f()
}
