package render

import "errors"

// ErrPresenterQuit signals that the user closed the presentation target.
var ErrPresenterQuit = errors.New("presenter closed")
