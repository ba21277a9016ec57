// Package objstore is a provider-agnostic object storage client.
//
// Objects are moved in fixed-size chunks by a bounded pool of workers. Every
// chunk is checksummed, every transport call runs under a retry policy with
// exponential backoff and jitter, and a whole-object digest is verified on
// both upload and download. Failed or cancelled uploads abort the backend's
// multipart upload so that no partial object becomes visible.
//
// Backends plug in through transport.Transport. Adapters are provided for
// Amazon S3 (s3transport), MinIO (miniotransport), Storj (storjtransport) and
// a local or in-memory filesystem (fstransport).
//
// Example:
//
//	t, err := s3transport.NewFromConfig(ctx, s3transport.Config{Region: "eu-west-1"})
//	if err != nil {
//	    return err
//	}
//	client, err := objstore.New(t, objstore.WithMaxParallelism(8))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	if err := client.CreateContainer(ctx, "reports"); err != nil {
//	    return err
//	}
//	desc, err := client.UploadObject(ctx, "reports", "2024/q1.csv", bytes.NewReader(data))
package objstore
