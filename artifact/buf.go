package artifact

import (
	"encoding/binary"
	"fmt"
)

// Minimal little-endian append/read buffers for artifact headers. Reads
// return errors instead of panicking: malformed blobs are expected input at
// this boundary.

type outputBuf struct {
	buf []byte
}

func (o *outputBuf) appendUint32(x uint32) {
	o.buf = binary.LittleEndian.AppendUint32(o.buf, x)
}

func (o *outputBuf) appendBytes(b []byte) {
	o.appendUint32(uint32(len(b)))
	o.buf = append(o.buf, b...)
}

func (o *outputBuf) bytes() []byte { return o.buf }

type inputBuf struct {
	buf []byte
}

func (i *inputBuf) readUint32() (uint32, error) {
	if len(i.buf) < 4 {
		return 0, fmt.Errorf("artifact: truncated header")
	}
	x := binary.LittleEndian.Uint32(i.buf[:4])
	i.buf = i.buf[4:]
	return x, nil
}

func (i *inputBuf) readBytes() ([]byte, error) {
	n, err := i.readUint32()
	if err != nil {
		return nil, err
	}
	if uint32(len(i.buf)) < n {
		return nil, fmt.Errorf("artifact: truncated header")
	}
	b := i.buf[:n]
	i.buf = i.buf[n:]
	return b, nil
}
