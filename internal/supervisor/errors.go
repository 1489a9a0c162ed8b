package supervisor

import "errors"

// ErrUnsafePath — команда удаления указывает за пределы корня хранилища.
var ErrUnsafePath = errors.New("path is outside the storage root")
