package web

import "embed"

// Templates embeds HTML templates rendered into PDF documents.
//
//go:embed templates/**/*.html
var Templates embed.FS

// Static embeds the stylesheets inlined into those templates.
//
//go:embed static/**/*
var Static embed.FS
