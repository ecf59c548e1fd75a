package splat

// copyBatchSize bounds how many splats CopyGetterToReceiver moves per
// Get/Set round, keeping per-call allocations small when copying a large
// array (spec §4.4 "batched transfer").
const copyBatchSize = 16384

// CopyGetterToReceiver copies every splat of src into dst starting at
// dstBase, moving copyBatchSize splats at a time. dst must already be
// Init'd with enough room and a compatible max SH degree / LoD-tree flag.
// A field src lacks is skipped, since Get* for an absent field returns nil;
// a field src has and dst lacks makes the copy fail with dst's Set* error.
func CopyGetterToReceiver(dst Receiver, src Getter, dstBase int) error {
	n := src.NumSplats()
	for off := 0; off < n; off += copyBatchSize {
		count := copyBatchSize
		if off+count > n {
			count = n - off
		}
		base := dstBase + off

		center, err := src.GetCenter(off, count)
		if err != nil {
			return err
		}
		if err := dst.SetCenter(base, center); err != nil {
			return err
		}

		opacity, err := src.GetOpacity(off, count)
		if err != nil {
			return err
		}
		if err := dst.SetOpacity(base, opacity); err != nil {
			return err
		}

		rgb, err := src.GetRGB(off, count)
		if err != nil {
			return err
		}
		if err := dst.SetRGB(base, rgb); err != nil {
			return err
		}

		scale, err := src.GetScale(off, count)
		if err != nil {
			return err
		}
		if err := dst.SetScale(base, scale); err != nil {
			return err
		}

		quat, err := src.GetQuat(off, count)
		if err != nil {
			return err
		}
		if err := dst.SetQuat(base, quat); err != nil {
			return err
		}

		if sh1, err := src.GetSH1(off, count); err != nil {
			return err
		} else if sh1 != nil {
			if err := dst.SetSH1(base, sh1); err != nil {
				return err
			}
		}
		if sh2, err := src.GetSH2(off, count); err != nil {
			return err
		} else if sh2 != nil {
			if err := dst.SetSH2(base, sh2); err != nil {
				return err
			}
		}
		if sh3, err := src.GetSH3(off, count); err != nil {
			return err
		} else if sh3 != nil {
			if err := dst.SetSH3(base, sh3); err != nil {
				return err
			}
		}

		if cc, err := src.GetChildCount(off, count); err != nil {
			return err
		} else if cc != nil {
			if err := dst.SetChildCount(base, cc); err != nil {
				return err
			}
		}
		if cs, err := src.GetChildStart(off, count); err != nil {
			return err
		} else if cs != nil {
			if err := dst.SetChildStart(base, cs); err != nil {
				return err
			}
		}
	}
	return nil
}
