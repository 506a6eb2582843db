package httpapi

import "github.com/dmitrijs2005/credport/internal/logging"

func nopLogger() logging.Logger { return logging.NewNopLogger() }
