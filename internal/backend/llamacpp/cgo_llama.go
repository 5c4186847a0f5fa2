//go:build llama

package llamacpp

// Link against libllama from ./bin with an $ORIGIN rpath so the binary finds
// the shared libraries next to itself.

/*
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../../bin -lllama
*/
import "C"
