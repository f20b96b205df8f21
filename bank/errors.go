/*
Copyright (C) 2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package bank

import "errors"

var (
	ErrClosed          = errors.New("bank: closed")
	ErrExhausted       = errors.New("bank: executable memory budget exhausted")
	ErrMapFailed       = errors.New("bank: cannot map executable memory")
	ErrUnsupportedArch = errors.New("bank: no closure templates for this architecture")
	ErrInvalidHandle   = errors.New("bank: pointer is not a closure handle")
	ErrNotLive         = errors.New("bank: closure is not live")
	ErrUnknownSetting  = errors.New("bank: unknown setting")
	ErrCorrupt         = errors.New("bank: free list corrupt")
)
