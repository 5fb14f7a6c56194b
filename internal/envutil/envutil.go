package envutil

import (
	"os"
	"strings"
)

// IsDev checks if we're running in development mode
// where cookies may be sent over plain HTTP
func IsDev() bool {
	env := strings.ToLower(os.Getenv("CUSTOMER_AUTH_ENV"))
	return env == "development" || env == "dev"
}
