// Package logx is a thin structured-logging layer over zerolog.
//
// It exists so the rest of the codebase never imports zerolog directly:
// components take a logx.Logger, derive children with With(), and stay
// oblivious to where the output goes (console, file, operator chat).
package logx
