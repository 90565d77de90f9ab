/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package errors

// Package-namespaced error code floors. Each package that registers messages
// via RegisterIdFctMessage claims the codes from its MinPkgX constant up to
// the next floor: 100 codes for most packages, 20 for each handler package,
// mirroring the numbering scheme used for the ambient error taxonomy.
const (
	MinPkgParcel        = 100
	MinPkgCache         = 200
	MinPkgQueue         = 300
	MinPkgEncode        = 400
	MinPkgPipeline      = 500
	MinPkgBackground    = 600
	MinPkgPort          = 700
	MinPkgHandler       = 800
	MinPkgHandlerTCP    = 820
	MinPkgHandlerWebRTC = 840
	MinPkgConfig        = 900
	MinPkgLogger        = 1000
	MinPkgContext       = 1100

	MinAvailable = 1200
)
