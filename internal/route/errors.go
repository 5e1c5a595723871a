package route

import (
	"errors"
	"fmt"
)

// ErrRouteNotFound matches every *RouteNotFoundError via errors.Is.
var ErrRouteNotFound = errors.New("route not found")

// RouteNotFoundError reports that the provider returned no usable route.
type RouteNotFoundError struct {
	Mode       Mode
	ResultCode int
	ResultMsg  string
}

func (e *RouteNotFoundError) Error() string {
	if e.ResultCode != 0 {
		return fmt.Sprintf("%s route not found: provider code %d: %s", e.Mode, e.ResultCode, e.ResultMsg)
	}
	return fmt.Sprintf("%s route not found", e.Mode)
}

func (e *RouteNotFoundError) Is(target error) bool { return target == ErrRouteNotFound }
