package embeddings

import (
	"github.com/fxamacker/cbor/v2"
)

const (
	entryPrefix = "entry/"
	metaKey     = "meta"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("embeddings: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("embeddings: CBOR decoder initialization failed: " + err.Error())
	}
}

// record is one indexed title with its vector.
type record struct {
	UID    string    `cbor:"1,keyasint"`
	Title  string    `cbor:"2,keyasint"`
	Vector []float32 `cbor:"3,keyasint"`
}

// meta describes the last build.
type meta struct {
	Count      int   `cbor:"1,keyasint"`
	Dimensions int   `cbor:"2,keyasint"`
	Built      int64 `cbor:"3,keyasint"`
}

func entryKey(uid string) []byte {
	return []byte(entryPrefix + uid)
}
