package saleae

import (
	"github.com/google/gousb"

	"github.com/izzy84075/sigrok/ezusb"
)

// defaultUploader pushes images with the ezusb boot-ROM protocol.  It is a
// variable so the driver core can be exercised without issuing control
// transfers; see Driver.WithUploader.
var defaultUploader FirmwareUploadFunc = func(dev *gousb.Device, configuration int, path string) error {
	return ezusb.Download(dev, configuration, path)
}
