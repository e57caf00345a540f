// cga.go - Color Graphics Adapter: mode/color registers, text and
// low-resolution graphics rasterizers, double-buffered scanline memory.
//
// Ported from the reference CGA card's mode decode and raster pipeline.
// Where the reference implementation packs eight pixels into a uint64 for
// SIMD-style fills, this port keeps one palette index per pixel byte: the
// externally observable contract is the row-major palette-index buffer,
// not the packing strategy used to fill it.
package xtce

const (
	cgaVRAMSize   = 0x4000
	cgaApertureMask = 0x3FFF

	cgaHCharClock = 8
	cgaLCharClock = 16

	crtcR0HorizontalMax = 113
	crtcScanlineMax     = 262

	cgaXResMax = (crtcR0HorizontalMax + 1) * cgaHCharClock
	cgaYResMax = crtcScanlineMax

	cgaModeMatchMask    = 0x1F
	cgaModeHiresText    = 0x01
	cgaModeGraphics     = 0x02
	cgaModeBW           = 0x04
	cgaModeEnable       = 0x08
	cgaModeHiresGraphics = 0x10
	cgaModeBlinking     = 0x20

	cgaStatusDisplayEnable    = 0x01
	cgaStatusLightpenTrigger  = 0x02
	cgaStatusLightpenSwitch   = 0x04
	cgaStatusVerticalRetrace  = 0x08

	cgaCCAltColorMask = 0x07
	cgaCCAltIntensity = 0x08
	cgaCCBrightBit    = 0x10
	cgaCCPaletteBit   = 0x20

	cgaTextModeWrap = 0x1FFF
	cgaGfxModeWrap  = 0x3FFF

	cgaCursorMax             = 32
	cgaDefaultCursorFrameCycle = 8
	cgaMonitorVSyncMin       = 64
)

// cgaPalettes are the four-entry low-resolution graphics palettes
// selectable via the color-control register's palette/intensity bits.
var cgaPalettes = [6][4]uint8{
	{0, 2, 4, 6},    // red/green/brown
	{0, 10, 12, 14}, // red/green/brown, high intensity
	{0, 3, 5, 7},    // cyan/magenta/white
	{0, 11, 13, 15}, // cyan/magenta/white, high intensity
	{0, 3, 4, 7},    // red/cyan/white
	{0, 11, 12, 15}, // red/cyan/white, high intensity
}

type CGA struct {
	vram [cgaVRAMSize]uint8

	cursorData [cgaCursorMax]bool

	buf     [2][]uint8
	backBuf int

	crtc *CRTC6845

	clockDivisor    int
	charClockMask   uint64
	ticks           uint64

	vma uint64
	rba int

	lpLatch, lpSwitch bool

	cursorBlink, cursorStatus, blinkState bool

	modeByte                                                          uint8
	modeEnable, modeBW, modeGraphics, modeBlinking, modeHiresGfx, modeHiresText bool

	monitorVSync bool
	beamX, beamY uint32
	scanline     uint32

	curFG, curBG             uint8
	ccRegisterByte           uint8
	ccOverscanColor          uint8
	ccAltColor               uint8
	ccPalette                int
	curChar, curAttr         uint8

	frameCount uint64
}

func NewCGA() *CGA {
	c := &CGA{crtc: NewCRTC6845()}
	c.Reset()
	return c
}

func (c *CGA) Reset() {
	crtc := c.crtc
	*c = CGA{crtc: crtc}
	c.crtc.Reset()
	c.buf[0] = make([]uint8, cgaXResMax*cgaYResMax)
	c.buf[1] = make([]uint8, cgaXResMax*cgaYResMax)
	c.backBuf = 0
	c.clockDivisor = 1
	c.charClockMask = cgaHCharClock - 1
}

func (c *CGA) FrontBuffer() []uint8 {
	return c.buf[1-c.backBuf]
}

func (c *CGA) BackBuffer() []uint8 {
	return c.buf[c.backBuf]
}

func (c *CGA) ReadMem(address uint16) uint8 {
	return c.vram[address&cgaApertureMask]
}

func (c *CGA) WriteMem(address uint16, data uint8) {
	c.vram[address&cgaApertureMask] = data
}

func (c *CGA) ReadIO(relAddress uint16) uint8 {
	switch relAddress {
	case cgaCRTCIndex:
		return 0xFF
	case cgaCRTCData:
		return c.crtc.Read(1)
	case cgaStatus:
		return c.readStatusRegister()
	}
	return 0xFF
}

func (c *CGA) WriteIO(relAddress uint16, data uint8) {
	switch relAddress {
	case cgaCRTCIndex:
		c.crtc.Write(0, data)
	case cgaCRTCData:
		c.crtc.Write(1, data)
	case cgaModeCtrl:
		c.writeModeRegister(data)
	case cgaColorCtrl:
		c.writeColorControlRegister(data)
	}
}

func (c *CGA) readStatusRegister() uint8 {
	var s uint8
	status := c.crtc.Status()
	if !status.DEN {
		s |= cgaStatusDisplayEnable
	}
	if c.lpSwitch {
		s |= cgaStatusLightpenSwitch
	}
	if c.lpLatch {
		s |= cgaStatusLightpenTrigger
	}
	if status.VBlank {
		s |= cgaStatusVerticalRetrace
	}
	return s
}

func (c *CGA) writeModeRegister(data uint8) {
	c.modeByte = data
	c.modeHiresText = data&cgaModeHiresText != 0
	c.modeGraphics = data&cgaModeGraphics != 0
	c.modeBW = data&cgaModeBW != 0
	c.modeEnable = data&cgaModeEnable != 0
	c.modeHiresGfx = data&cgaModeHiresGraphics != 0
	c.modeBlinking = data&cgaModeBlinking != 0

	if c.modeHiresGfx {
		c.clockDivisor = 1
	} else if c.modeHiresText {
		c.clockDivisor = 1
	} else {
		c.clockDivisor = 2
	}
	if c.clockDivisor == 2 {
		c.charClockMask = cgaLCharClock - 1
	} else {
		c.charClockMask = cgaHCharClock - 1
	}
	c.updatePalette()
}

func (c *CGA) writeColorControlRegister(data uint8) {
	c.ccRegisterByte = data
	c.ccOverscanColor = data & 0x0F
	c.ccAltColor = data & cgaCCAltColorMask
	if data&cgaCCAltIntensity != 0 {
		c.ccAltColor |= 0x08
	}
	c.updatePalette()
}

func (c *CGA) updatePalette() {
	bright := 0
	if c.ccRegisterByte&cgaCCBrightBit != 0 {
		bright = 1
	}
	paletteSet := 0
	if c.ccRegisterByte&cgaCCPaletteBit != 0 {
		paletteSet = 2
	}
	c.ccPalette = paletteSet + bright
	if c.ccPalette > 5 {
		c.ccPalette = 5
	}
}

func (c *CGA) Crtc() *CRTC6845 { return c.crtc }

// Tick advances the CGA by one master cycle, ticking the CRTC once every
// character clock.
func (c *CGA) Tick() {
	c.ticks++
	if c.ticks&c.charClockMask == 0 {
		c.tickChar()

		status, vma := c.crtc.Tick(func() uint8 { return 5 })
		c.vma = uint64(vma)
		if status.VSync {
			c.vsync()
		}
		if status.HSync {
			c.hsync()
		}
		c.fetchChar()
	}
}

func (c *CGA) tickChar() {
	charWidth := cgaHCharClock * c.clockDivisor
	if c.rba >= cgaXResMax*cgaYResMax-charWidth {
		return
	}

	status := c.crtc.Status()
	if status.DEN {
		if !c.modeGraphics {
			c.drawTextModeChar(charWidth)
		} else if c.modeHiresGfx {
			c.drawSolid(charWidth, c.ccOverscanColor)
		} else {
			c.drawLowresGfxChar(charWidth)
		}
	} else {
		c.drawSolid(charWidth, 0)
	}

	c.beamX += uint32(charWidth)
	c.rba += charWidth
	if int(c.beamX) >= cgaXResMax {
		c.beamX = 0
		c.beamY++
		c.monitorVSync = false
		c.rba = cgaXResMax * int(c.beamY)
	}
}

func (c *CGA) drawSolid(width int, color uint8) {
	buf := c.buf[c.backBuf]
	for i := 0; i < width && c.rba+i < len(buf); i++ {
		buf[c.rba+i] = color & 0x0F
	}
}

func (c *CGA) drawTextModeChar(width int) {
	buf := c.buf[c.backBuf]
	if c.vma == uint64(c.crtc.CursorAddress()) && c.cursorStatus && c.blinkState &&
		c.cursorData[c.crtc.VLC()&0x1F] {
		c.drawSolid(width, c.curFG)
		return
	}
	if !c.modeEnable {
		c.drawSolid(width, 0)
		return
	}
	if c.cursorBlink && !c.cursorStatus {
		c.drawSolid(width, c.curBG)
		return
	}

	font := cgaGlyphRow(c.curChar, c.crtc.VLC()&0x07)
	for col := 0; col < 8; col++ {
		px := c.curFG
		if font&(0x80>>uint(col)) == 0 {
			px = c.curBG
		}
		rep := width / 8
		for r := 0; r < rep; r++ {
			idx := c.rba + col*rep + r
			if idx < len(buf) {
				buf[idx] = px
			}
		}
	}
}

func (c *CGA) drawLowresGfxChar(width int) {
	buf := c.buf[c.backBuf]
	if !c.modeEnable {
		c.drawSolid(width, c.ccAltColor)
		return
	}
	row := c.crtc.VLC()
	rowOffset := uint64(row&0x01) << 12
	base := ((c.vma & 0x0FFF) | rowOffset) << 1

	byte0 := c.vram[base&cgaApertureMask]
	byte1 := c.vram[(base+1)&cgaApertureMask]

	writePixels := func(b uint8, offset int) {
		for pair := 0; pair < 4; pair++ {
			shift := uint(6 - pair*2)
			pix := (b >> shift) & 0x03
			color := cgaPalettes[c.ccPalette][pix]
			if pix == 0 {
				color = c.ccAltColor
			}
			for dup := 0; dup < 2; dup++ {
				idx := c.rba + offset + pair*2 + dup
				if idx < len(buf) {
					buf[idx] = color
				}
			}
		}
	}
	writePixels(byte0, 0)
	writePixels(byte1, 8)
}

func (c *CGA) fetchChar() {
	wrap := uint64(cgaTextModeWrap)
	if c.modeGraphics {
		wrap = cgaGfxModeWrap
	}
	addr := (c.vma & wrap) << 1
	c.curChar = c.vram[addr&cgaApertureMask]
	c.curAttr = c.vram[(addr+1)&cgaApertureMask]
	c.curFG = c.curAttr & 0x0F

	if c.modeBlinking {
		c.curBG = (c.curAttr >> 4) & 0x07
		c.cursorBlink = c.curAttr&0x80 != 0
	} else {
		c.curBG = c.curAttr >> 4
		c.cursorBlink = false
	}
}

func (c *CGA) hsync() {
	c.scanline++
	if c.beamX > 0 {
		c.beamY++
	}
	c.beamX = 0
	c.rba = cgaXResMax * int(c.beamY)
}

func (c *CGA) vsync() {
	if c.beamY <= cgaMonitorVSyncMin {
		return
	}
	c.beamX = 0
	c.beamY = 0
	c.rba = 0
	c.scanline = 0
	c.frameCount++

	if c.frameCount%cgaDefaultCursorFrameCycle == 0 {
		c.cursorStatus = !c.cursorStatus
		c.blinkState = c.cursorStatus
	}
	c.swap()
}

func (c *CGA) swap() {
	c.backBuf = 1 - c.backBuf
	buf := c.buf[c.backBuf]
	for i := range buf {
		buf[i] = 0
	}
}

// cgaGlyphRow returns the 8-bit bitmap for one scanline of a character
// cell. Glyph bitmaps are supplied by a font table external to this
// component (see FontROM); the row is blank when FontROM is nil or too
// short, which keeps the rasterizer total.
func cgaGlyphRow(glyph uint8, row uint8) uint8 {
	if FontROM == nil {
		return 0
	}
	offset := int(glyph)*8 + int(row&0x07)
	if offset >= len(FontROM) {
		return 0
	}
	return FontROM[offset]
}
