package pipeline

import (
	"fmt"

	"facturas/internal/imageprep"
)

// Input is one invoice image to process. Source identifies it in results and is
// stored as the image path of the processed invoice.
type Input struct {
	Source string
	Image  []byte
	MIME   string

	load func() (*imageprep.Image, error)
}

// FileInput defers reading and preparing the image until the run starts.
func FileInput(path string) Input {
	return Input{Source: path, load: func() (*imageprep.Image, error) { return imageprep.Load(path) }}
}

// BytesInput prepares raw uploaded bytes when the run starts.
func BytesInput(source string, data []byte) Input {
	return Input{Source: source, load: func() (*imageprep.Image, error) { return imageprep.Prepare(data) }}
}

func (in *Input) resolve() error {
	if len(in.Image) > 0 {
		if in.MIME == "" {
			in.MIME = "image/jpeg"
		}
		return nil
	}
	if in.load == nil {
		return fmt.Errorf("%w: no image data for %s", ErrInvalidInput, in.Source)
	}
	img, err := in.load()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	in.Image = img.Data
	in.MIME = img.MIME
	return nil
}
