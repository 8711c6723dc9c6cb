//go:build opencv

package main

import (
	"github.com/aretw0/photobooth/internal/cli"
	"github.com/aretw0/photobooth/internal/config"
	"github.com/aretw0/photobooth/pkg/adapters/opencv"
	"github.com/aretw0/photobooth/pkg/ports"
)

func init() {
	cli.RegisterDriver(config.DriverOpenCV, func(cfg config.CameraConfig) (ports.CameraDevice, error) {
		return opencv.New(cfg.Device), nil
	})
}
