package internal

import "errors"

var ErrInvalidURL = errors.New("invalid url")
var ErrInvalidValidityPeriod = errors.New("validity period must be a positive number of minutes")
var ErrCapacityExceeded = errors.New("maximum number of active links reached")
var ErrCodeConflict = errors.New("short code already exists")
var ErrCodeSpaceExhausted = errors.New("could not generate an unused short code")
var ErrNotFound = errors.New("link not found")
var ErrExpired = errors.New("link expired")
