package api

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"
)

// UsernameHeader carries the caller's self-declared display name. There
// is no authentication behind it; the name is the whole identity, and it
// travels explicitly with every request rather than living in ambient
// state.
const UsernameHeader = "X-Username"

const maxUsernameLength = 64

var errMissingUsername = errors.New("missing " + UsernameHeader + " header")

// usernameFromRequest extracts the acting display name from the request
// header, falling back to the username query parameter for EventSource
// clients that cannot set headers.
func usernameFromRequest(c echo.Context) (string, error) {
	name := strings.TrimSpace(c.Request().Header.Get(UsernameHeader))
	if name == "" {
		name = strings.TrimSpace(c.QueryParam("username"))
	}
	if name == "" {
		return "", errMissingUsername
	}
	if len(name) > maxUsernameLength {
		return "", errors.New("display name too long")
	}
	return name, nil
}
