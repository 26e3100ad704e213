// avi.go - Pure Go AVI writer using the Motion JPEG (MJPEG) video codec.
// The poster is encoded once and repeated as every frame, giving a still clip
// that messaging apps accept as video.
package generator

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/jpeg"
	"io"
)

// aviFPS is the frame rate of generated clips.
const aviFPS = 15

// aviWriter writes little-endian RIFF fields and remembers the first error.
type aviWriter struct {
	w   *bufio.Writer
	err error
}

func (a *aviWriter) fourCC(s string) {
	a.bytes([]byte(s))
}

func (a *aviWriter) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	a.bytes(b[:])
}

func (a *aviWriter) u16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	a.bytes(b[:])
}

func (a *aviWriter) bytes(b []byte) {
	if a.err == nil {
		_, a.err = a.w.Write(b)
	}
}

// writeAVI writes img as an MJPEG AVI lasting durationSec seconds.
func writeAVI(w io.Writer, img image.Image, durationSec, quality int) error {
	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return fmt.Errorf("encode JPEG frame: %w", err)
	}
	jpegData := buf.Bytes()
	jpegSize := uint32(len(jpegData))

	// chunks are padded to an even size
	paddedJPEGSize := jpegSize + jpegSize%2

	width := uint32(img.Bounds().Dx())
	height := uint32(img.Bounds().Dy())
	microSecPerFrame := uint32(1000000 / aviFPS)
	totalFrames := uint32(durationSec) * aviFPS

	frameChunkSize := 8 + paddedJPEGSize // "00dc" + size + data
	moviSize := 4 + totalFrames*frameChunkSize
	idx1Size := 8 + totalFrames*16 // idx1 header + entries
	hdrlSize := uint32(4 + 64 + 124) // "hdrl" + avih + strl
	fileSize := 4 + (8 + hdrlSize) + (8 + moviSize) + idx1Size

	a := &aviWriter{w: bufio.NewWriter(w)}

	// RIFF header
	a.fourCC("RIFF")
	a.u32(fileSize)
	a.fourCC("AVI ")

	// hdrl LIST
	a.fourCC("LIST")
	a.u32(hdrlSize)
	a.fourCC("hdrl")

	// avih (main AVI header)
	a.fourCC("avih")
	a.u32(56)
	a.u32(microSecPerFrame)
	a.u32(jpegSize * aviFPS) // max bytes per sec
	a.u32(0)                 // padding granularity
	a.u32(0x10)              // AVIF_HASINDEX
	a.u32(totalFrames)
	a.u32(0) // initial frames
	a.u32(1) // streams
	a.u32(jpegSize)
	a.u32(width)
	a.u32(height)
	for range 4 {
		a.u32(0) // reserved
	}

	// strl LIST
	a.fourCC("LIST")
	a.u32(116) // "strl" + strh(64) + strf(48)
	a.fourCC("strl")

	// strh (stream header)
	a.fourCC("strh")
	a.u32(56)
	a.fourCC("vids")
	a.fourCC("MJPG")
	a.u32(0) // flags
	a.u16(0) // priority
	a.u16(0) // language
	a.u32(0) // initial frames
	a.u32(1) // scale
	a.u32(aviFPS)
	a.u32(0) // start
	a.u32(totalFrames)
	a.u32(jpegSize)
	a.u32(0) // quality
	a.u32(0) // sample size
	a.u16(0) // left
	a.u16(0) // top
	a.u16(uint16(width))
	a.u16(uint16(height))

	// strf (BITMAPINFOHEADER)
	a.fourCC("strf")
	a.u32(40)
	a.u32(40) // biSize
	a.u32(width)
	a.u32(height)
	a.u16(1)  // biPlanes
	a.u16(24) // biBitCount
	a.fourCC("MJPG")
	a.u32(width * height * 3)
	a.u32(0) // biXPelsPerMeter
	a.u32(0) // biYPelsPerMeter
	a.u32(0) // biClrUsed
	a.u32(0) // biClrImportant

	// movi LIST
	a.fourCC("LIST")
	a.u32(moviSize)
	a.fourCC("movi")
	for i := uint32(0); i < totalFrames; i++ {
		a.fourCC("00dc")
		a.u32(jpegSize)
		a.bytes(jpegData)
		if jpegSize%2 != 0 {
			a.bytes([]byte{0})
		}
	}

	// idx1
	a.fourCC("idx1")
	a.u32(totalFrames * 16)
	offset := uint32(4) // relative to "movi"
	for i := uint32(0); i < totalFrames; i++ {
		a.fourCC("00dc")
		a.u32(0x10) // AVIIF_KEYFRAME
		a.u32(offset)
		a.u32(jpegSize)
		offset += frameChunkSize
	}

	if a.err != nil {
		return fmt.Errorf("write AVI: %w", a.err)
	}
	if err := a.w.Flush(); err != nil {
		return fmt.Errorf("write AVI: %w", err)
	}
	return nil
}
