// Command qspitft brings up a QSPI TFT panel described by a setup file.
//
//	qspitft validate --config configs/esp32s3-st77916.yaml
//	qspitft bringup  --config configs/esp32s3-st77916.yaml --platform host --trace
//	qspitft models   --config configs/esp32s3-st77916.yaml
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
