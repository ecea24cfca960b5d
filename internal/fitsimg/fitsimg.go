// Package fitsimg reads the primary image of a FITS file, adds a constant
// offset to every pixel, and writes the result next to the input.
package fitsimg

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/astrogo/fitsio"
	"gonum.org/v1/gonum/floats"
)

// DefaultOutputName is the file name ConstAdd writes beside its input.
const DefaultOutputName = "const_added.fits"

// ErrNoData is returned for a primary HDU without an image array.
var ErrNoData = errors.New("fitsimg: primary HDU has no data")

// Image is a primary HDU held in memory. Data is a typed slice matching
// Bitpix: []uint8, []int16, []int32, []int64, []float32 or []float64.
type Image struct {
	Bitpix int
	Axes   []int
	Cards  []fitsio.Card // header cards minus the structural keywords
	Data   any
}

// Len returns the number of pixels.
func (img *Image) Len() int {
	n := 1
	for _, a := range img.Axes {
		n *= a
	}
	if len(img.Axes) == 0 {
		return 0
	}
	return n
}

// Read loads the primary HDU of the FITS file at path.
func Read(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fits, err := fitsio.Open(f)
	if err != nil {
		return nil, fmt.Errorf("open fits %s: %w", path, err)
	}
	defer fits.Close()

	hdu, ok := fits.HDU(0).(fitsio.Image)
	if !ok {
		return nil, fmt.Errorf("%s: primary HDU is not an image", path)
	}

	hdr := hdu.Header()
	img := &Image{
		Bitpix: hdr.Bitpix(),
		Axes:   append([]int(nil), hdr.Axes()...),
	}
	for i := range hdr.Keys() {
		card := hdr.Card(i)
		if card == nil || structural(card.Name) {
			continue
		}
		img.Cards = append(img.Cards, *card)
	}

	n := img.Len()
	if n == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoData)
	}

	data, err := allocate(img.Bitpix, n)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := hdu.Read(data); err != nil {
		return nil, fmt.Errorf("read pixels from %s: %w", path, err)
	}
	img.Data = deref(data)
	return img, nil
}

// Write stores img as the primary HDU of a new FITS file at path, replacing
// any existing file. The data goes to a temp file first and is renamed into
// place so readers never see a half-written file.
func Write(path string, img *Image) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "fitsimg-*.tmp")
	if err != nil {
		return err
	}

	if err := encode(tmp, img); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	return os.Rename(tmp.Name(), path)
}

func encode(f *os.File, img *Image) error {
	fits, err := fitsio.Create(f)
	if err != nil {
		return err
	}
	defer fits.Close()

	hdu := fitsio.NewImage(img.Bitpix, img.Axes)
	defer hdu.Close()

	if err := hdu.Header().Append(img.Cards...); err != nil {
		return fmt.Errorf("copy header: %w", err)
	}
	if err := hdu.Write(img.Data); err != nil {
		return fmt.Errorf("write pixels: %w", err)
	}
	return fits.Write(hdu)
}

// AddConstant adds c to the physical value, BZERO + BSCALE*raw, of every
// pixel in place. When c/BSCALE is representable in the stored type it is
// added to the raw values and the scaling cards are kept. A scaled integer
// image that cannot hold the shift is converted to physical BITPIX -32 with
// the scaling cards dropped. An unscaled integer image needs an integral c;
// integer arithmetic wraps on overflow.
func (img *Image) AddConstant(c float64) error {
	bscale, bzero := img.Scaling()
	raw := c / bscale
	if img.Bitpix > 0 && raw != math.Trunc(raw) {
		if bscale == 1 && bzero == 0 {
			return fmt.Errorf("fitsimg: offset %v is not integral for BITPIX %d", c, img.Bitpix)
		}
		if err := img.toPhysical(bscale, bzero); err != nil {
			return err
		}
		raw = c
	}
	return img.addRaw(raw)
}

func (img *Image) addRaw(c float64) error {
	switch data := img.Data.(type) {
	case []uint8:
		addInt(data, uint8(int64(c)))
	case []int16:
		addInt(data, int16(c))
	case []int32:
		addInt(data, int32(c))
	case []int64:
		addInt(data, int64(c))
	case []float32:
		c32 := float32(c)
		for i := range data {
			data[i] += c32
		}
	case []float64:
		floats.AddConst(c, data)
	default:
		return fmt.Errorf("fitsimg: unsupported pixel type %T", img.Data)
	}
	return nil
}

// Scaling returns the BSCALE and BZERO keywords, defaulting to 1 and 0.
func (img *Image) Scaling() (bscale, bzero float64) {
	bscale, bzero = 1, 0
	for _, card := range img.Cards {
		v, ok := cardFloat(card.Value)
		if !ok {
			continue
		}
		switch card.Name {
		case "BSCALE":
			if v != 0 {
				bscale = v
			}
		case "BZERO":
			bzero = v
		}
	}
	return bscale, bzero
}

// toPhysical replaces integer pixels with their float32 physical values and
// drops BSCALE and BZERO.
func (img *Image) toPhysical(bscale, bzero float64) error {
	var phys []float32
	switch data := img.Data.(type) {
	case []uint8:
		phys = scaleInt(data, bscale, bzero)
	case []int16:
		phys = scaleInt(data, bscale, bzero)
	case []int32:
		phys = scaleInt(data, bscale, bzero)
	case []int64:
		phys = scaleInt(data, bscale, bzero)
	default:
		return fmt.Errorf("fitsimg: unsupported pixel type %T", img.Data)
	}

	cards := img.Cards[:0:0]
	for _, card := range img.Cards {
		if card.Name == "BSCALE" || card.Name == "BZERO" {
			continue
		}
		cards = append(cards, card)
	}
	img.Cards = cards
	img.Bitpix = -32
	img.Data = phys
	return nil
}

func scaleInt[T uint8 | int16 | int32 | int64](data []T, bscale, bzero float64) []float32 {
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(bzero + bscale*float64(v))
	}
	return out
}

func cardFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

func addInt[T uint8 | int16 | int32 | int64](data []T, c T) {
	for i := range data {
		data[i] += c
	}
}

// OutputPath returns where ConstAdd writes for input: name in the same
// directory. An empty name means DefaultOutputName.
func OutputPath(input, name string) string {
	if name == "" {
		name = DefaultOutputName
	}
	return filepath.Join(filepath.Dir(input), name)
}

// ConstAdd reads input, adds offset to its primary image and writes the
// result to OutputPath(input, outputName). It returns the path written.
func ConstAdd(input string, offset float64, outputName string) (string, error) {
	img, err := Read(input)
	if err != nil {
		return "", err
	}
	if err := img.AddConstant(offset); err != nil {
		return "", err
	}

	out := OutputPath(input, outputName)
	if err := Write(out, img); err != nil {
		return "", fmt.Errorf("write %s: %w", out, err)
	}
	return out, nil
}

// allocate returns a pointer to a slice of n pixels of the Go type matching
// bitpix, ready for fitsio's Read.
func allocate(bitpix, n int) (any, error) {
	switch bitpix {
	case 8:
		s := make([]uint8, n)
		return &s, nil
	case 16:
		s := make([]int16, n)
		return &s, nil
	case 32:
		s := make([]int32, n)
		return &s, nil
	case 64:
		s := make([]int64, n)
		return &s, nil
	case -32:
		s := make([]float32, n)
		return &s, nil
	case -64:
		s := make([]float64, n)
		return &s, nil
	}
	return nil, fmt.Errorf("unsupported BITPIX %d", bitpix)
}

func deref(ptr any) any {
	switch p := ptr.(type) {
	case *[]uint8:
		return *p
	case *[]int16:
		return *p
	case *[]int32:
		return *p
	case *[]int64:
		return *p
	case *[]float32:
		return *p
	case *[]float64:
		return *p
	}
	return nil
}

// structural reports whether a keyword describes the HDU layout. Those are
// regenerated from Bitpix and Axes when writing.
func structural(name string) bool {
	switch name {
	case "SIMPLE", "BITPIX", "NAXIS", "EXTEND", "XTENSION", "PCOUNT", "GCOUNT", "END":
		return true
	}
	return strings.HasPrefix(name, "NAXIS")
}
