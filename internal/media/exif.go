package media

import (
	"bytes"
	"fmt"
	"time"

	exif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"
)

// EXIF timestamps use colons in the date part, and the offset tags
// carry an explicit zero offset because the stamp is normalized to UTC.
const (
	exifTimeLayout = "2006:01:02 15:04:05"
	exifUTCOffset  = "+00:00"
)

// embedExif returns jpegData with the capture time written into the
// DateTime family of tags and the note, when present, into
// ImageDescription. Existing EXIF data is preserved.
func embedExif(jpegData []byte, captureTime time.Time, note string) ([]byte, error) {
	jmp := jpegstructure.NewJpegMediaParser()

	intfc, err := jmp.ParseBytes(jpegData)
	if err != nil {
		return nil, fmt.Errorf("parsing jpeg: %w", err)
	}
	sl := intfc.(*jpegstructure.SegmentList)

	rootIb, err := sl.ConstructExifBuilder()
	if err != nil {
		// No EXIF block in the source image; start a fresh one.
		im, err := exifcommon.NewIfdMappingWithStandard()
		if err != nil {
			return nil, fmt.Errorf("building ifd mapping: %w", err)
		}
		ti := exif.NewTagIndex()
		if err := exif.LoadStandardTags(ti); err != nil {
			return nil, fmt.Errorf("loading standard tags: %w", err)
		}
		rootIb = exif.NewIfdBuilder(im, ti, exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder)
	}

	stamp := captureTime.UTC().Format(exifTimeLayout)

	ifd0, err := exif.GetOrCreateIbFromRootIb(rootIb, "IFD0")
	if err != nil {
		return nil, fmt.Errorf("resolving IFD0: %w", err)
	}
	if err := ifd0.SetStandardWithName("DateTime", stamp); err != nil {
		return nil, fmt.Errorf("setting DateTime: %w", err)
	}
	if note != "" {
		if err := ifd0.SetStandardWithName("ImageDescription", note); err != nil {
			return nil, fmt.Errorf("setting ImageDescription: %w", err)
		}
	}

	exifIfd, err := exif.GetOrCreateIbFromRootIb(rootIb, "IFD/Exif")
	if err != nil {
		return nil, fmt.Errorf("resolving IFD/Exif: %w", err)
	}
	for name, value := range map[string]string{
		"DateTimeOriginal":    stamp,
		"DateTimeDigitized":   stamp,
		"OffsetTime":          exifUTCOffset,
		"OffsetTimeOriginal":  exifUTCOffset,
		"OffsetTimeDigitized": exifUTCOffset,
	} {
		if err := exifIfd.SetStandardWithName(name, value); err != nil {
			return nil, fmt.Errorf("setting %s: %w", name, err)
		}
	}

	if err := sl.SetExif(rootIb); err != nil {
		return nil, fmt.Errorf("attaching exif block: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := sl.Write(buf); err != nil {
		return nil, fmt.Errorf("serializing jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
