// Package kfmt provides formatted diagnostic output that is safe to use
// before the Go memory allocator is available. Output is sent to the sink
// registered via SetOutputSink; any output produced before a sink exists is
// buffered in a small ring buffer and replayed once a sink is registered.
//
// The terminal renderer behind the sink may interpret inline color-escape
// control codes; kfmt passes all bytes through uninterpreted.
package kfmt

import (
	"io"
	"unsafe"
)

// numBufSize defines the scratch buffer size for formatting numbers.
const numBufSize = 32

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")

	numBuf [numBufSize]byte

	// singleByte is a shared buffer for passing single characters to
	// doWrite without converting them to a fresh slice.
	singleByte = []byte{' '}

	// earlyPrintBuffer captures Printf output produced before a sink has
	// been registered.
	earlyPrintBuffer ringBuffer

	// outputSink is the io.Writer where Printf sends its output. While it
	// is nil output is redirected to the earlyPrintBuffer.
	outputSink io.Writer
)

// SetOutputSink sets the target for calls to Printf to w and replays any data
// accumulated in the early print buffer to it.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		io.Copy(w, &earlyPrintBuffer)
	}
}

// Printf formats its arguments and writes the result to the registered
// output sink. It supports a subset of the fmt.Printf verbs:
//
//	%s	string or byte slice
//	%o	integer, base 8
//	%d	integer, base 10
//	%x	integer, base 16 with lower-case letters
//	%t	"true" or "false"
//
// A verb may be preceded by a decimal width. Strings and base-10 integers
// shorter than the width are left-padded with spaces; base-8 and base-16
// integers are left-padded with zeroes.
//
// Printf never allocates; it may therefore be called at any point during
// kernel initialization.
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Fprintf behaves exactly like Printf but writes the formatted output to the
// supplied io.Writer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var argIndex int

	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			writeByte(w, format[i])
			continue
		}

		// scan the optional width
		var padLen int
		for i++; i < len(format) && format[i] >= '0' && format[i] <= '9'; i++ {
			padLen = padLen*10 + int(format[i]-'0')
		}

		if i >= len(format) {
			doWrite(w, errNoVerb)
			break
		}

		if format[i] == '%' {
			writeByte(w, '%')
			continue
		}

		if argIndex >= len(args) {
			doWrite(w, errMissingArg)
			continue
		}
		arg := args[argIndex]
		argIndex++

		switch format[i] {
		case 'o':
			fmtInt(w, arg, 8, padLen)
		case 'd':
			fmtInt(w, arg, 10, padLen)
		case 'x':
			fmtInt(w, arg, 16, padLen)
		case 's':
			fmtString(w, arg, padLen)
		case 't':
			fmtBool(w, arg)
		default:
			doWrite(w, errNoVerb)
		}
	}

	for ; argIndex < len(args); argIndex++ {
		doWrite(w, errExtraArg)
	}
}

// fmtBool prints a formatted version of boolean value v.
func fmtBool(w io.Writer, v interface{}) {
	bVal, isBool := v.(bool)
	if !isBool {
		doWrite(w, errWrongArgType)
		return
	}

	if bVal {
		doWrite(w, trueValue)
	} else {
		doWrite(w, falseValue)
	}
}

// fmtString prints a formatted version of string or []byte value v, applying
// the padding specified by padLen.
func fmtString(w io.Writer, v interface{}, padLen int) {
	switch sVal := v.(type) {
	case string:
		for pad := padLen - len(sVal); pad > 0; pad-- {
			writeByte(w, ' ')
		}
		// converting the string to a byte slice would allocate, so
		// the bytes go out one at a time.
		for i := 0; i < len(sVal); i++ {
			writeByte(w, sVal[i])
		}
	case []byte:
		for pad := padLen - len(sVal); pad > 0; pad-- {
			writeByte(w, ' ')
		}
		doWrite(w, sVal)
	default:
		doWrite(w, errWrongArgType)
	}
}

// fmtInt prints a formatted version of v in the requested base, applying the
// padding specified by padLen. All built-in signed and unsigned integer types
// are supported.
func fmtInt(w io.Writer, v interface{}, base, padLen int) {
	var (
		uval uint64
		neg  bool
	)

	switch val := v.(type) {
	case uint8:
		uval = uint64(val)
	case uint16:
		uval = uint64(val)
	case uint32:
		uval = uint64(val)
	case uint64:
		uval = val
	case uint:
		uval = uint64(val)
	case uintptr:
		uval = uint64(val)
	case int8:
		neg, uval = val < 0, abs64(int64(val))
	case int16:
		neg, uval = val < 0, abs64(int64(val))
	case int32:
		neg, uval = val < 0, abs64(int64(val))
	case int64:
		neg, uval = val < 0, abs64(val)
	case int:
		neg, uval = val < 0, abs64(int64(val))
	default:
		doWrite(w, errWrongArgType)
		return
	}

	padCh := byte('0')
	if base == 10 {
		padCh = ' '
	}
	if padLen >= numBufSize {
		padLen = numBufSize - 1
	}

	// render digits right to left into the scratch buffer
	pos := numBufSize
	for {
		pos--
		digit := byte(uval % uint64(base))
		if digit < 10 {
			numBuf[pos] = '0' + digit
		} else {
			numBuf[pos] = 'a' + digit - 10
		}

		if uval /= uint64(base); uval == 0 {
			break
		}
	}

	if neg && padCh == ' ' {
		pos--
		numBuf[pos] = '-'
	}
	for numBufSize-pos < padLen && pos > 0 {
		pos--
		numBuf[pos] = padCh
	}
	if neg && padCh == '0' {
		pos--
		numBuf[pos] = '-'
	}

	doWrite(w, numBuf[pos:])
}

func abs64(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}

// writeByte emits a single byte through the shared one-byte buffer.
func writeByte(w io.Writer, b byte) {
	singleByte[0] = b
	doWrite(w, singleByte)
}

// doWrite is a proxy that uses the runtime noescape hack to hide p from the
// compiler's escape analysis. Without it the compiler cannot prove that p
// does not escape through the sink interface and every Printf call would
// allocate, which crashes the kernel when Printf runs before the Go
// allocator is initialized.
func doWrite(w io.Writer, p []byte) {
	doRealWrite(w, noEscape(unsafe.Pointer(&p)))
}

func doRealWrite(w io.Writer, bufPtr unsafe.Pointer) {
	p := *(*[]byte)(bufPtr)
	if w != nil {
		w.Write(p)
	} else {
		earlyPrintBuffer.Write(p)
	}
}

// noEscape hides a pointer from escape analysis. This function is copied over
// from runtime/stubs.go
//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
