// Package config loads typed configuration structs from environment
// variables using caarlos0/env field tags, with an optional .env file picked
// up once per process via godotenv.
//
// Configuration structs live next to the packages they configure (for
// example webpush.Config); this package only owns the loading mechanics.
package config
