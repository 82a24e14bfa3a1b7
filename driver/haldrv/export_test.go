package haldrv

var MapError = mapError
