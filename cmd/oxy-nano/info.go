package main

import (
	"bytes"

	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/vkprobe"
	"github.com/urfave/cli"
)

// Info loads and validates an asset pair and prints its summary.
func Info(ctx *cli.Context) error {
	setupLogging(ctx)

	store, err := loadStore(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	writeAssetTable(&buf, store)
	logger.Noticef("asset summary\n%s", buf.String())
	return nil
}

// ListDevices prints every Vulkan device and whether it supports the 64-bit atomics the
// visibility buffer needs. The software device is always available.
func ListDevices(ctx *cli.Context) error {
	setupLogging(ctx)

	devices, err := vkprobe.ListDevices()
	if err != nil {
		logger.Warningf("no vulkan devices: %v", err)
		logger.Notice("the software device is available")
		return nil
	}

	var buf bytes.Buffer
	writeDeviceTable(&buf, devices)
	logger.Noticef("%d vulkan device(s)\n%s", len(devices), buf.String())
	return nil
}
