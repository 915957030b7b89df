// Package sitestore is the storage and sync layer behind the site's admin
// panel.
//
// Named collections of JSON records are read cloud-first and written
// local-first: every save lands in the local cache before it returns, and is
// then pushed to the cloud in the background. When the cloud misbehaves the
// site switches to local mode for the rest of the session and keeps working
// from the cache and the compiled-in defaults.
//
// Basic usage:
//
//	site, _ := sitestore.Open(
//	    sitestore.WithCloud("https://example.com/api/kv", "https://example.com/api/file"),
//	    sitestore.WithToken(os.Getenv("SITESTORE_TOKEN")),
//	)
//	defer site.Close()
//
//	news := site.Get(ctx, "news_v3")
//	push, err := site.Save(ctx, "news_v3", append(news, record))
//
//	// Assets come back as a cloud URL, or a data URL in local mode
//	url := site.UploadAsset(ctx, sitestore.File{Name: "logo.png", Data: data})
//
//	// Backups
//	doc, _ := site.ExportData(ctx)
//	res := site.ImportData(ctx, doc)
//	b, _ := site.CreateFullBackup(ctx, func(s string) { fmt.Println(s) })
//
// Backups can also be published to an OCI registry:
//
//	site, _ := sitestore.Open(sitestore.WithBackupRemote("ghcr.io/acme/site-backup:latest"))
//	digest, _ := site.PublishBackup(ctx, nil)
package sitestore
