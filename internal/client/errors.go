package client

import "errors"

var errEmptyBranch = errors.New("branch service returned no branch")
