package tracking

import (
	"net/url"
	"strings"
)

// TrackPath is the route prefix embedded in outgoing mail.
const TrackPath = "/mail/track-email/"

// pixelGIF is a 1x1 transparent GIF89a: header, logical screen descriptor,
// two-entry colour table, graphic control extension marking index 0
// transparent, image descriptor, LZW data and trailer.
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x21,
	0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00,
	0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44,
	0x01, 0x00, 0x3b,
}

// Pixel returns a copy of the tracking image bytes.
func Pixel() []byte {
	return append([]byte(nil), pixelGIF...)
}

// URL builds the public tracking URL for token.
func URL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + TrackPath + url.PathEscape(token)
}
