package testsupport

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
)

// EXIF lists the tags JPEGWithEXIF writes. Zero values are omitted.
type EXIF struct {
	Make        string
	Orientation uint16
	ISO         uint16
	Thumbnail   []byte // JPEG stored in IFD1
}

type ifdEntry struct {
	tag, typ uint16
	count    uint32
	value    []byte
}

const (
	typeASCII = 2
	typeShort = 3
	typeLong  = 4
)

func short(v uint16) []byte { return binary.BigEndian.AppendUint16(nil, v) }
func long(v uint32) []byte  { return binary.BigEndian.AppendUint32(nil, v) }

func ifdSize(es []ifdEntry) int {
	n := 2 + 12*len(es) + 4
	for _, e := range es {
		if len(e.value) > 4 {
			n += len(e.value) + len(e.value)%2
		}
	}
	return n
}

// writeIFD appends one IFD at the buffer's current offset, which is its
// position relative to the TIFF header.
func writeIFD(buf *bytes.Buffer, es []ifdEntry, next uint32) {
	base := buf.Len()
	dataOff := base + 2 + 12*len(es) + 4
	var data []byte
	buf.Write(short(uint16(len(es))))
	for _, e := range es {
		buf.Write(short(e.tag))
		buf.Write(short(e.typ))
		buf.Write(long(e.count))
		if len(e.value) <= 4 {
			v := make([]byte, 4)
			copy(v, e.value)
			buf.Write(v)
			continue
		}
		buf.Write(long(uint32(dataOff + len(data))))
		data = append(data, e.value...)
		if len(e.value)%2 == 1 {
			data = append(data, 0)
		}
	}
	buf.Write(long(next))
	buf.Write(data)
}

// EXIFBlock returns a big-endian TIFF structure carrying x.
func EXIFBlock(x EXIF) []byte {
	var ifd0, exifIFD, ifd1 []ifdEntry
	if x.Make != "" {
		v := append([]byte(x.Make), 0)
		ifd0 = append(ifd0, ifdEntry{0x010F, typeASCII, uint32(len(v)), v})
	}
	if x.Orientation != 0 {
		ifd0 = append(ifd0, ifdEntry{0x0112, typeShort, 1, short(x.Orientation)})
	}
	if x.ISO != 0 {
		ifd0 = append(ifd0, ifdEntry{0x8769, typeLong, 1, long(0)})
		exifIFD = append(exifIFD, ifdEntry{0x8827, typeShort, 1, short(x.ISO)})
	}
	if len(x.Thumbnail) > 0 {
		ifd1 = []ifdEntry{
			{0x0201, typeLong, 1, long(0)},
			{0x0202, typeLong, 1, long(uint32(len(x.Thumbnail)))},
		}
	}

	exifOff := 8 + ifdSize(ifd0)
	ifd1Off := exifOff
	if len(exifIFD) > 0 {
		ifd1Off += ifdSize(exifIFD)
	}
	thumbOff := ifd1Off + ifdSize(ifd1)
	for i := range ifd0 {
		if ifd0[i].tag == 0x8769 {
			ifd0[i].value = long(uint32(exifOff))
		}
	}
	next := uint32(0)
	if len(ifd1) > 0 {
		ifd1[0].value = long(uint32(thumbOff))
		next = uint32(ifd1Off)
	}

	var buf bytes.Buffer
	buf.WriteString("MM")
	buf.Write(short(42))
	buf.Write(long(8))
	writeIFD(&buf, ifd0, next)
	if len(exifIFD) > 0 {
		writeIFD(&buf, exifIFD, 0)
	}
	if len(ifd1) > 0 {
		writeIFD(&buf, ifd1, 0)
		buf.Write(x.Thumbnail)
	}
	return buf.Bytes()
}

// JPEGWithEXIF encodes img and inserts an APP1 EXIF segment after SOI.
func JPEGWithEXIF(img image.Image, x EXIF) ([]byte, error) {
	var enc bytes.Buffer
	if err := jpeg.Encode(&enc, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, err
	}
	payload := append([]byte("Exif\x00\x00"), EXIFBlock(x)...)
	if len(payload)+2 > 0xFFFF {
		return nil, fmt.Errorf("exif segment too large: %d bytes", len(payload))
	}
	raw := enc.Bytes()
	out := make([]byte, 0, len(raw)+len(payload)+4)
	out = append(out, raw[:2]...)
	out = append(out, 0xFF, 0xE1)
	out = append(out, short(uint16(len(payload)+2))...)
	out = append(out, payload...)
	out = append(out, raw[2:]...)
	return out, nil
}

// HalfAndHalf returns a w×h image whose left half is left and right half is
// right.
func HalfAndHalf(w, h int, left, right color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := left
			if x >= w/2 {
				c = right
			}
			img.Set(x, y, c)
		}
	}
	return img
}
