package function

import "github.com/parasol-framework/xquery/internal/xqerr"

func arityCardinalityErr(fn string, got int) error {
	return xqerr.ErrCardinality.New(fn, got)
}
