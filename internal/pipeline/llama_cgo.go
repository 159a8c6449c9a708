//go:build llama

package pipeline

// Links libllama from ./bin and sets an $ORIGIN rpath so the binary finds the
// shared libraries next to itself.

/*
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../bin -lllama
*/
import "C"
