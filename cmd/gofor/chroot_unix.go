//go:build unix

package main

import "syscall"

// enterChroot confines the process to root and moves to its top.
func enterChroot(root string) error {
	if err := syscall.Chdir(root); err != nil {
		return err
	}
	if err := syscall.Chroot(root); err != nil {
		return err
	}
	return syscall.Chdir("/")
}
