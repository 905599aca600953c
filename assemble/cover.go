package assemble

import (
	"path"
	"strings"

	"github.com/tsawler/epubkit/model"
)

// coverTokens mark a filename as a cover candidate.
var coverTokens = []string{"cover", "hyoushi", "表紙"}

// SelectCover picks the cover image. Candidates are tried in order: an image
// whose name is exactly "cover", any image whose name contains a cover
// token, the first color plate, then the first image. It returns nil when
// there are no images.
func SelectCover(images []Image) *Image {
	if len(images) == 0 {
		return nil
	}
	for i := range images {
		if strings.EqualFold(stem(images[i].Filename), "cover") {
			return &images[i]
		}
	}
	for i := range images {
		if images[i].Role == model.RoleCover {
			return &images[i]
		}
	}
	for i := range images {
		name := strings.ToLower(path.Base(images[i].Filename))
		for _, tok := range coverTokens {
			if strings.Contains(name, tok) {
				return &images[i]
			}
		}
	}
	for i := range images {
		if images[i].Role == model.RoleColorPlate || strings.Contains(strings.ToLower(images[i].Filename), "kuchie") {
			return &images[i]
		}
	}
	return &images[0]
}
