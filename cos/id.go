package cos

import (
	"github.com/teris-io/shortid"
)

// Alphabet mirrors the one the teacher's cmn/cos package seeds shortid
// with; it's just a permutation that avoids characters awkward in log
// lines and file names.
const idABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

var sid *shortid.Shortid

func InitIDGen(seed uint64) {
	sid = shortid.MustNew(4, idABC, seed)
}

// GenTraceID returns a short, human-readable identifier for a Request
// Context, used only in log lines — never as the transport token, which
// must stay a machine-word-sized opaque value per the token model.
func GenTraceID() string {
	if sid == nil {
		InitIDGen(1)
	}
	return sid.MustGenerate()
}
