//go:build !windows

package window

var directControl func(action, title string) error
