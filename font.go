package xtce

// FontROM holds the 256-glyph, 8-row-per-glyph CGA character generator
// ROM image (2048 bytes) used by drawTextModeChar to resolve a character
// code into a per-scanline bitmap. Font rasterization assets are an
// external concern: callers that need real glyph output load a ROM dump
// into this slice before ticking the CGA. A nil or undersized FontROM
// degrades to blank glyphs rather than panicking.
var FontROM []uint8
