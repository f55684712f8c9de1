// Package main is the shared library loaded by the mobile shells. Every
// exported function returns a JSON envelope {"ok", "data", "error"} that the
// caller releases with FreeString.
package main

/*
#include <stdlib.h>
*/
import "C"
import (
	"unsafe"
)

//export Init
func Init(dataDir, configFile *C.char) *C.char {
	return C.CString(core.init(C.GoString(dataDir), C.GoString(configFile)))
}

//export Status
func Status() *C.char {
	return C.CString(core.status())
}

//export SyncNow
func SyncNow() *C.char {
	return C.CString(core.syncNow())
}

//export SetOnline
func SetOnline(online C.int) *C.char {
	return C.CString(core.setOnline(online != 0))
}

//export Login
func Login(code *C.char) *C.char {
	return C.CString(core.login(C.GoString(code)))
}

//export ExportSnapshot
func ExportSnapshot() *C.char {
	return C.CString(core.exportSnapshot())
}

//export Pause
func Pause() *C.char {
	return C.CString(core.pause())
}

//export Resume
func Resume() *C.char {
	return C.CString(core.resume())
}

//export Shutdown
func Shutdown() *C.char {
	return C.CString(core.shutdown())
}

//export FreeString
func FreeString(s *C.char) {
	if s != nil {
		C.free(unsafe.Pointer(s))
	}
}
