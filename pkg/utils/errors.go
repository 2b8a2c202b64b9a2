package utils

// PanicIfNeeded lets REST handlers bail out; middleware.Recovery turns the
// panic into a JSON response.
func PanicIfNeeded(err any) {
	if err != nil {
		panic(err)
	}
}
