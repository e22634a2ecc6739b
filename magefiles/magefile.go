//go:build mage

// Targets de build para pet-care-tracker.
//
//	mage build     compila bin/pet-care-tracker
//	mage test      corre todos los tests
//	mage race      tests con -race (alarmas, watchers y migrador)
//	mage docs      regenera docs/ con swag
//	mage run       levanta la API en modo dev (memoria, sin JWT)
//	mage clean     borra bin/
package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binaryName = "pet-care-tracker"
	binaryDir  = "bin"
	cmdDir     = "./cmd/api"
)

var Default = Build

func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV("go", "build", "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

func Test() error {
	return sh.RunV("go", "test", "./...")
}

func Race() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Docs necesita swag en el PATH (go install github.com/swaggo/swag/cmd/swag@latest).
func Docs() error {
	return sh.RunV("swag", "init", "-g", "cmd/api/main.go", "-o", "docs", "--parseInternal")
}

func Run() error {
	mg.Deps(Build)
	env := map[string]string{
		"ENV":             "development",
		"STORAGE_BACKEND": "memory",
		"ALARM_DB_PATH":   filepath.Join(binaryDir, "alarms.db"),
	}
	return sh.RunWithV(env, filepath.Join(binaryDir, binaryName), "serve")
}

func Clean() error {
	return os.RemoveAll(binaryDir)
}
